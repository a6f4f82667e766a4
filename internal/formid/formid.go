// Package formid decodes, validates and extracts FormIDs from crash logs.
package formid

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

// Reserved value ranges and sentinels.
const (
	nullFormID     = 0x00000000
	invalidFormID  = 0xFFFFFFFF
	reservedHigh   = 0xFF000000 // engine-reserved runtime ids
	reservedLowMax = 0x00000FFF // engine-reserved default objects
)

// limitIndex is the plugin-index byte marking plugin-limit artifacts rather
// than real records.
const limitIndex = 0xFF

var (
	// formIDLinePattern matches the dedicated "Form ID: 0x########" line.
	formIDLinePattern = regexp.MustCompile(`(?i)^\s*Form ID:\s*0x([0-9A-F]{8})`)

	// bareIDPattern matches 8-hex-digit tokens with a 0x prefix anywhere.
	bareIDPattern = regexp.MustCompile(`(?i)\b0x([0-9A-F]{8})\b`)

	// formTypePattern captures a record type annotation such as
	// "(TESObjectREFR*)" preceding the id on the same line.
	formTypePattern = regexp.MustCompile(`\(([A-Za-z_][A-Za-z0-9_:]*)\s*\*\)`)
)

// cancelCheckInterval bounds cancellation latency on large segments.
const cancelCheckInterval = 128

// Resolve decodes a hexadecimal FormID, with or without a 0x prefix. On
// parse failure it returns the zero FormID and an error for the caller's
// logging boundary; resolution failures are never fatal to a scan.
func Resolve(hex string) (crash.FormID, error) {
	text := strings.TrimSpace(hex)
	text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")

	value, err := strconv.ParseUint(text, 16, 32)
	if err != nil {
		return crash.FormID{}, fmt.Errorf("form id %q: not a 32-bit hex value", hex)
	}

	v := uint32(value)
	return crash.FormID{
		Value:       v,
		PluginIndex: uint8(v >> 24),
		LocalID:     v & 0x00FFFFFF,
	}, nil
}

// Validate flags suspicious FormIDs: plugin indexes past the declared
// plugin count, NULL or all-ones values, engine-reserved ranges, and ids on
// the deny list. The deny list holds 8-hex-digit values, 0x prefix optional.
func Validate(ids []crash.FormID, pluginCount int, denyList []string) []string {
	deny := make(map[uint32]struct{}, len(denyList))
	for _, entry := range denyList {
		if id, err := Resolve(entry); err == nil {
			deny[id.Value] = struct{}{}
		}
	}

	var issues []string
	for _, id := range ids {
		switch {
		case id.Value == nullFormID || id.Value == invalidFormID:
			issues = append(issues, fmt.Sprintf("form id %08X is a NULL or invalid reference", id.Value))
		case pluginCount > 0 && int(id.PluginIndex) >= pluginCount && id.PluginIndex != limitIndex:
			issues = append(issues, fmt.Sprintf(
				"form id %08X references plugin index %02X but only %d plugins are loaded",
				id.Value, id.PluginIndex, pluginCount))
		case id.Value >= reservedHigh || id.Value <= reservedLowMax:
			issues = append(issues, fmt.Sprintf("form id %08X is in an engine-reserved range", id.Value))
		}
		if _, bad := deny[id.Value]; bad {
			issues = append(issues, fmt.Sprintf("form id %08X is a known-bad record", id.Value))
		}
	}
	return issues
}

// Extract scans the segmented log for FormID references: dedicated
// "Form ID:" lines and bare 0x-prefixed tokens in the call stack. Ids whose
// plugin-index byte is FF are plugin-limit artifacts and are dropped.
// Results are deduplicated by (value, source plugin) with occurrence counts
// and ordered by value, then source plugin.
func Extract(ctx context.Context, log *crash.Log, pluginList []crash.Plugin, logger *slog.Logger) ([]crash.FormID, error) {
	byIndex := make(map[uint8]string, len(pluginList))
	for _, p := range pluginList {
		if _, taken := byIndex[p.LoadOrder]; !taken {
			byIndex[p.LoadOrder] = p.FileName
		}
	}

	type key struct {
		value  uint32
		plugin string
	}
	found := make(map[key]*crash.FormID)
	var order []key

	record := func(hex, line string) {
		id, err := Resolve(hex)
		if err != nil {
			if logger != nil {
				logger.Debug("unresolvable form id", "token", hex, "line", line)
			}
			return
		}
		if id.PluginIndex == limitIndex {
			return
		}
		id.SourcePlugin = byIndex[id.PluginIndex]
		id.Context = line
		if m := formTypePattern.FindStringSubmatch(line); m != nil {
			id.FormType = m[1]
		}

		k := key{id.Value, id.SourcePlugin}
		if existing, seen := found[k]; seen {
			existing.Count++
			return
		}
		id.Count = 1
		found[k] = &id
		order = append(order, k)
	}

	for i, line := range log.Segment(crash.SegmentCallStack) {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if m := formIDLinePattern.FindStringSubmatch(line); m != nil {
			record(m[1], line)
			continue
		}
		for _, m := range bareIDPattern.FindAllStringSubmatch(line, -1) {
			record(m[1], line)
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].value != order[j].value {
			return order[i].value < order[j].value
		}
		return order[i].plugin < order[j].plugin
	})

	ids := make([]crash.FormID, 0, len(order))
	for _, k := range order {
		ids = append(ids, *found[k])
	}
	return ids, nil
}
