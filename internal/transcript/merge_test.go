package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitTurns(t *testing.T) {
	assert.Nil(t, SplitTurns(""))
	assert.Equal(t, []string{"hello"}, SplitTurns("hello"))
	assert.Equal(t, []string{"a", "b"}, SplitTurns("a\n\n  \nb\n"))
	assert.Equal(t, []string{"trimmed"}, SplitTurns("   trimmed   "))
}

func TestMergeInterleavesByIndex(t *testing.T) {
	got := Merge("a\nb", "x")
	assert.Equal(t, "User: a\nAI: x\nUser: b", got)
}

func TestMergeBalancedTurns(t *testing.T) {
	got := Merge("hi\nhow much is it", "hello\nit starts at ten thousand")
	want := strings.Join([]string{
		"User: hi",
		"AI: hello",
		"User: how much is it",
		"AI: it starts at ten thousand",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestMergeOneSidedInputs(t *testing.T) {
	assert.Equal(t, "User: only me", Merge("only me", ""))
	assert.Equal(t, "AI: only ai", Merge("", "only ai"))
}

func TestMergeEmptyInputs(t *testing.T) {
	assert.Equal(t, "", Merge("", ""))
	assert.Equal(t, "", Merge("  \n  ", "\n\n"))
}

func TestMergeLineCountEqualsNonBlankInputLines(t *testing.T) {
	user := "one\ntwo\nthree"
	ai := "a\n\nb"
	got := Merge(user, ai)
	assert.Len(t, strings.Split(got, "\n"), len(SplitTurns(user))+len(SplitTurns(ai)))
}
