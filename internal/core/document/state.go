package document

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTransition は状態機械で許可されていない遷移のエラー
	ErrInvalidTransition = errors.New("invalid document state transition")

	// ErrAlreadyProcessed は処理完了済みドキュメントの再処理要求のエラー
	// 再インジェストは未サポート（既存チャンクの扱いが未決定のため）
	ErrAlreadyProcessed = errors.New("document already processed")
)

// EventKind は状態遷移イベントの種類
type EventKind string

const (
	EventStart   EventKind = "start"
	EventSucceed EventKind = "succeed"
	EventFail    EventKind = "fail"
)

// Event は状態遷移を引き起こすイベント
type Event struct {
	Kind EventKind
	At   time.Time // EventSucceed の完了時刻
	Err  error     // EventFail の原因
}

// Start は処理開始イベントを返す
func Start() Event {
	return Event{Kind: EventStart}
}

// Succeed は処理成功イベントを返す
func Succeed(at time.Time) Event {
	return Event{Kind: EventSucceed, At: at}
}

// Fail は処理失敗イベントを返す
func Fail(err error) Event {
	return Event{Kind: EventFail, Err: err}
}

// State はドキュメント処理状態の値型
//
// 不変条件:
//   - ProcessingError != nil ⇔ Status == failed
//   - ProcessedAt != nil ⇔ Status == completed
type State struct {
	Status          Status
	ProcessingError *string
	ProcessedAt     *time.Time
}

// PendingState はアップロード直後の状態を返す
func PendingState() State {
	return State{Status: StatusPending}
}

// Transition は現在の状態とイベントから次の状態を計算する
// 入力の State は変更しない
//
//	pending|failed|processing --start--> processing
//	processing --succeed--> completed
//	processing --fail--> failed
//
// processing からの start は at-least-once 配信による再実行（ワーカー停止後の再開）を表す。
func Transition(cur State, ev Event) (State, error) {
	switch ev.Kind {
	case EventStart:
		switch cur.Status {
		case StatusPending, StatusFailed, StatusProcessing:
			return State{Status: StatusProcessing}, nil
		case StatusCompleted:
			return cur, ErrAlreadyProcessed
		}

	case EventSucceed:
		if cur.Status == StatusProcessing {
			at := ev.At
			if at.IsZero() {
				at = time.Now()
			}
			return State{Status: StatusCompleted, ProcessedAt: &at}, nil
		}

	case EventFail:
		if cur.Status == StatusProcessing {
			msg := "unknown error"
			if ev.Err != nil && ev.Err.Error() != "" {
				msg = ev.Err.Error()
			}
			return State{Status: StatusFailed, ProcessingError: &msg}, nil
		}
	}

	return cur, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.Kind, cur.Status)
}

// Validate は State が不変条件を満たしているかを検証する
func (s State) Validate() error {
	if !s.Status.IsValid() {
		return fmt.Errorf("unknown status: %q", s.Status)
	}
	if (s.ProcessingError != nil) != (s.Status == StatusFailed) {
		return fmt.Errorf("processing error must be set iff status is failed (status=%s)", s.Status)
	}
	if (s.ProcessedAt != nil) != (s.Status == StatusCompleted) {
		return fmt.Errorf("processed_at must be set iff status is completed (status=%s)", s.Status)
	}
	return nil
}
