package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEthAddress(t *testing.T) {
	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{"lowercase", "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e", true},
		{"checksummed", "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E", true},
		{"surrounding whitespace", "  0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e ", true},
		{"empty", "", false},
		{"missing prefix", "4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e", false},
		{"too short", "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982", false},
		{"too long", "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e1", false},
		{"non-hex", "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982g", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidEthAddress(tt.addr))
		})
	}
}
