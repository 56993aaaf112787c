package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateLockID(t *testing.T) {
	a := GenerateLockID("document_chunks", "3f0c")
	b := GenerateLockID("document_chunks", "3f0c")
	c := GenerateLockID("document_chunks", "3f0d")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestConnectionParams_ConnString(t *testing.T) {
	p := ConnectionParams{Host: "db", Port: 5432, User: "rag", Password: "pw", DBName: "interview", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=rag password=pw dbname=interview sslmode=disable", p.ConnString())
}
