package plugins_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashlens/crashlens-go/internal/plugins"
	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

func TestAnalyze_ParsesEntries(t *testing.T) {
	a := &plugins.Analyzer{}
	res, err := a.Analyze(context.Background(), []string{
		"[00]     Fallout4.esm",
		"[01]     DLCRobot.esm",
		"[23]     SomeMod.esp",
		"[FE:001] SomeLight.esl",
		"[24]     Flagged.esp [Light]",
		"not a plugin line",
	})
	require.NoError(t, err)

	require.Len(t, res.Plugins, 5)
	assert.Equal(t, crash.PluginCounts{Total: 5, Masters: 2, Light: 2, Regular: 1}, res.Counts)
	assert.False(t, res.LimitTriggered)
	assert.Empty(t, res.Issues)

	fo4 := res.Plugins[0]
	assert.Equal(t, "Fallout4.esm", fo4.FileName)
	assert.Equal(t, uint8(0x00), fo4.LoadOrder)
	assert.True(t, fo4.IsMaster)

	light := res.Plugins[3]
	assert.Equal(t, "SomeLight.esl", light.FileName)
	assert.Equal(t, uint8(0xFE), light.LoadOrder)
	assert.True(t, light.IsLight)

	flagged := res.Plugins[4]
	assert.True(t, flagged.IsLight)
	assert.Equal(t, "Light", flagged.Flags)
}

func TestAnalyze_LimitSentinel(t *testing.T) {
	a := &plugins.Analyzer{}
	res, err := a.Analyze(context.Background(), []string{
		"[00] Fallout4.esm",
		"[FF] Overflow.esp",
	})
	require.NoError(t, err)
	assert.True(t, res.LimitTriggered)
}

func TestAnalyze_DeduplicatesByFileName(t *testing.T) {
	a := &plugins.Analyzer{}
	res, err := a.Analyze(context.Background(), []string{
		"[00] Fallout4.esm",
		"[01] fallout4.esm",
	})
	require.NoError(t, err)
	assert.Len(t, res.Plugins, 1)
}

func TestAnalyze_MasterOrderIssue(t *testing.T) {
	a := &plugins.Analyzer{}
	res, err := a.Analyze(context.Background(), []string{
		"[00] Fallout4.esm",
		"[01] EarlyMod.esp",
		"[02] LateMaster.esm",
	})
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], "masters must load before plugins")
	assert.Contains(t, res.Issues[0], "LateMaster.esm")
}

func TestAnalyze_CountThresholds(t *testing.T) {
	a := &plugins.Analyzer{HardLimit: 3, RecommendedLimit: 2}

	res, err := a.Analyze(context.Background(), []string{
		"[00] A.esm", "[01] B.esm", "[02] C.esm",
	})
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], "recommended maximum")

	res, err = a.Analyze(context.Background(), []string{
		"[00] A.esm", "[01] B.esm", "[02] C.esm", "[03] D.esm",
	})
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0], "exceeds the game limit")
}

func TestMatchCallStack(t *testing.T) {
	a := &plugins.Analyzer{Ignore: []string{"fallout4.esm"}}
	matches, err := a.MatchCallStack(context.Background(), []string{
		`ExtraTextDisplayData "Homemaker.esm"`,
		`(TESNPC*) "Homemaker.esm"`,
		`modified by: Homemaker.esm`,
		`Fallout4.esm frame`,
	}, []string{"Homemaker.esm", "Fallout4.esm", "Unused.esp"})
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, crash.PluginMatch{Name: "homemaker.esm", Count: 2}, matches[0])
}

func TestMatchCallStack_Ordering(t *testing.T) {
	a := &plugins.Analyzer{}
	matches, err := a.MatchCallStack(context.Background(), []string{
		"a.esp b.esp",
		"b.esp",
	}, []string{"a.esp", "b.esp", "c.esp"})
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "b.esp", matches[0].Name)
	assert.Equal(t, 2, matches[0].Count)
	assert.Equal(t, "a.esp", matches[1].Name)
}

func TestExtractModuleNames(t *testing.T) {
	names := plugins.ExtractModuleNames([]string{
		"achievements.dll v1.0.2",
		"Buffout4.dll v1.26.2",
		"prkf.dll",
		"ACHIEVEMENTS.DLL v1.0.2",
		"",
	})
	assert.Equal(t, []string{"achievements.dll", "buffout4.dll", "prkf.dll"}, names)
}

func TestJoinModules(t *testing.T) {
	list := []crash.Plugin{
		{FileName: "Fallout4.esm", Status: crash.PluginMaster},
		{FileName: "buffout4.dll", Status: crash.PluginDLL},
	}

	joined := plugins.JoinModules(list, []string{"achievements.dll", "BUFFOUT4.DLL", "fallout4.esm"})

	require.Len(t, joined, 3)
	assert.Equal(t, list, joined[:2])
	assert.Equal(t, crash.Plugin{FileName: "achievements.dll", Status: crash.PluginDLL}, joined[2])

	// The input list is left untouched.
	assert.Len(t, list, 2)
}
