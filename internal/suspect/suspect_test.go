package suspect_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashlens/crashlens-go/internal/suspect"
	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

func makeLog(mainError string, stack ...string) *crash.Log {
	return &crash.Log{
		MainError: mainError,
		Segments: map[string][]string{
			crash.SegmentCallStack: stack,
		},
	}
}

func scan(t *testing.T, e *suspect.Engine, log *crash.Log) []crash.Suspect {
	t.Helper()
	suspects, err := e.Scan(context.Background(), log)
	require.NoError(t, err)
	return suspects
}

func TestScan_ErrorRule(t *testing.T) {
	e := &suspect.Engine{
		ErrorRules: map[string]string{
			"5 | Stack Overflow Crash": "EXCEPTION_STACK_OVERFLOW",
		},
	}

	suspects := scan(t, e, makeLog("Unhandled exception EXCEPTION_STACK_OVERFLOW at 0x7FF7"))
	require.Len(t, suspects, 1)
	assert.Equal(t, "Stack Overflow Crash", suspects[0].Name)
	assert.Equal(t, 5, suspects[0].Severity)
	assert.InDelta(t, 0.9, suspects[0].Confidence, 1e-9)

	assert.Empty(t, scan(t, e, makeLog("Unhandled exception EXCEPTION_ACCESS_VIOLATION")))
}

func TestScan_StackRulePlainSignals(t *testing.T) {
	e := &suspect.Engine{
		StackRules: map[string][]string{
			"4 | Texture Streaming Crash": {"BSTextureStreamer", "CreateTexture2D"},
		},
	}

	suspects := scan(t, e, makeLog("",
		"BSTextureStreamer::Manager",
		"some other frame",
	))
	require.Len(t, suspects, 1)
	s := suspects[0]
	assert.Equal(t, "Texture Streaming Crash", s.Name)
	assert.Equal(t, []string{"BSTextureStreamer"}, s.MatchedPatterns)
	// base 0.4 + stack 0.2 + ratio 0.2 * 1/2
	assert.InDelta(t, 0.7, s.Confidence, 1e-9)
}

func TestScan_MainErrorRequiredGatesRule(t *testing.T) {
	e := &suspect.Engine{
		StackRules: map[string][]string{
			"6 | Patcher Crash": {"ME-REQ|robco_patcher.dll", "RobCo_Patcher"},
		},
	}

	// Stack evidence alone does not satisfy an ME-REQ rule.
	assert.Empty(t, scan(t, e, makeLog("Unhandled exception at Fallout4.exe",
		"RobCo_Patcher.dll+001AD2")))

	suspects := scan(t, e, makeLog("Unhandled exception at RobCo_Patcher.dll+001AD2",
		"RobCo_Patcher.dll+001AD2"))
	require.Len(t, suspects, 1)
	// base 0.4 + error 0.2 + stack 0.2 + ratio 0.2 * 2/2
	assert.InDelta(t, 1.0, suspects[0].Confidence, 1e-9)
}

func TestScan_NegativeSignalAbandonsRule(t *testing.T) {
	e := &suspect.Engine{
		StackRules: map[string][]string{
			"5 | Allocator Crash": {"MemoryManager", "NOT|tbbmalloc"},
		},
	}

	assert.Empty(t, scan(t, e, makeLog("",
		"MemoryManager::Allocate",
		"tbbmalloc.dll+0001",
	)))

	suspects := scan(t, e, makeLog("", "MemoryManager::Allocate"))
	require.Len(t, suspects, 1)
}

func TestScan_OccurrenceCount(t *testing.T) {
	e := &suspect.Engine{
		StackRules: map[string][]string{
			"4 | Repeated Frame Crash": {"3|BSScript"},
		},
	}

	assert.Empty(t, scan(t, e, makeLog("", "BSScript::Run", "BSScript::Run")))

	suspects := scan(t, e, makeLog("", "BSScript::Run", "BSScript::Run", "BSScript::Stack"))
	require.Len(t, suspects, 1)
}

func TestScan_MalformedKeySkipped(t *testing.T) {
	e := &suspect.Engine{
		ErrorRules: map[string]string{
			"no separator":             "whatever",
			"5 | Stack Overflow Crash": "EXCEPTION_STACK_OVERFLOW",
		},
	}
	suspects := scan(t, e, makeLog("EXCEPTION_STACK_OVERFLOW"))
	require.Len(t, suspects, 1)
	assert.Equal(t, "Stack Overflow Crash", suspects[0].Name)
}

func TestScan_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := &suspect.Engine{ErrorRules: map[string]string{"5 | X": "y"}}
	_, err := e.Scan(ctx, makeLog(""))
	require.ErrorIs(t, err, context.Canceled)
}

func TestDedupe(t *testing.T) {
	in := []crash.Suspect{
		{Name: "A", Severity: 4, Confidence: 0.5},
		{Name: "B", Severity: 3, Confidence: 0.9},
		{Name: "A", Severity: 6, Confidence: 0.4},
		{Name: "B", Severity: 3, Confidence: 0.7},
	}
	out := suspect.Dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, crash.Suspect{Name: "A", Severity: 6, Confidence: 0.4}, out[0])
	assert.Equal(t, crash.Suspect{Name: "B", Severity: 3, Confidence: 0.9}, out[1])
}

func TestSort(t *testing.T) {
	suspects := []crash.Suspect{
		{Name: "B", Severity: 4, Confidence: 0.5},
		{Name: "A", Severity: 4, Confidence: 0.5},
		{Name: "C", Severity: 6, Confidence: 0.3},
		{Name: "D", Severity: 4, Confidence: 0.9},
	}
	suspect.Sort(suspects)

	names := make([]string, len(suspects))
	for i, s := range suspects {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"C", "D", "A", "B"}, names)
}
