package mysql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDSNForcesParseTime(t *testing.T) {
	out, err := NormalizeDSN("relay:secret@tcp(db:3306)/wirerelay")
	require.NoError(t, err)
	require.Contains(t, out, "parseTime=true")
	require.True(t, strings.HasPrefix(out, "relay:secret@tcp(db:3306)/wirerelay"))
}

func TestNormalizeDSNRejectsGarbage(t *testing.T) {
	_, err := NormalizeDSN("tcp(db:3306")
	require.Error(t, err)
}
