// Package fingerprint computes a stable content hash over a plan
// snapshot. The hash drives the dirty-since-sync flag and validates
// memoized analysis results: equal fingerprints mean equal inputs.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/zeebo/blake3"

	"github.com/congresstwin/congresstwin/internal/domain"
)

// Canonicalize returns a canonical JSON representation of the snapshot
// with stable key and element ordering for consistent hashing. Only
// schedule-relevant fields participate; audit metadata such as
// lastModifiedDateTime is deliberately excluded so that touching a task
// without changing its content does not change the fingerprint.
func Canonicalize(snap *domain.Snapshot) ([]byte, error) {
	tasks := make([]map[string]any, 0, len(snap.Tasks))
	for _, t := range sortedTasks(snap.Tasks) {
		m := map[string]any{
			"id":       t.ID,
			"title":    t.Title,
			"bucket":   t.BucketID,
			"status":   string(t.Status),
			"percent":  t.PercentComplete,
			"priority": t.Priority,
		}
		if t.StartAt != nil {
			m["start"] = t.StartAt.UTC().Format(time.RFC3339)
		}
		if t.DueAt != nil {
			m["due"] = t.DueAt.UTC().Format(time.RFC3339)
		}
		if t.CompletedAt != nil {
			m["completed"] = t.CompletedAt.UTC().Format(time.RFC3339)
		}
		if len(t.Assignees) > 0 {
			m["assignees"] = sortedCopy(t.Assignees)
		}
		if subs := snap.Subtasks[t.ID]; len(subs) > 0 {
			cl := make([]map[string]any, 0, len(subs))
			for _, s := range sortedSubtasks(subs) {
				cl = append(cl, map[string]any{
					"id":      s.ID,
					"title":   s.Title,
					"checked": s.Checked,
				})
			}
			m["checklist"] = cl
		}
		tasks = append(tasks, m)
	}

	buckets := make([]map[string]any, 0, len(snap.Buckets))
	for _, b := range sortedBuckets(snap.Buckets) {
		buckets = append(buckets, map[string]any{"id": b.ID, "name": b.Name})
	}

	deps := make([]map[string]any, 0, len(snap.Dependencies))
	for _, d := range sortedDeps(snap.Dependencies) {
		deps = append(deps, map[string]any{
			"pred": d.PredecessorID,
			"succ": d.SuccessorID,
			"type": string(d.Type),
		})
	}

	data := map[string]any{
		"plan":         snap.Plan.ID,
		"name":         snap.Plan.Name,
		"buckets":      buckets,
		"tasks":        tasks,
		"dependencies": deps,
	}
	if snap.Plan.EventDate != nil {
		data["eventDate"] = snap.Plan.EventDate.UTC().Format(time.RFC3339)
	}

	return json.Marshal(sortKeys(data))
}

// Hash computes the blake3 hash of the canonicalized snapshot as a
// 64-character hex string.
func Hash(snap *domain.Snapshot) (string, error) {
	canonical, err := Canonicalize(snap)
	if err != nil {
		return "", fmt.Errorf("canonicalize snapshot: %w", err)
	}

	hasher := blake3.New()
	if _, err := hasher.Write(canonical); err != nil {
		return "", fmt.Errorf("hash snapshot: %w", err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

func sortedTasks(in []domain.Task) []domain.Task {
	out := append([]domain.Task(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedSubtasks(in []domain.Subtask) []domain.Subtask {
	out := append([]domain.Subtask(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedBuckets(in []domain.Bucket) []domain.Bucket {
	out := append([]domain.Bucket(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedDeps(in []domain.Dependency) []domain.Dependency {
	out := append([]domain.Dependency(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].PredecessorID != out[j].PredecessorID {
			return out[i].PredecessorID < out[j].PredecessorID
		}
		return out[i].SuccessorID < out[j].SuccessorID
	})
	return out
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// sortKeys recursively sorts map keys for stable JSON output.
func sortKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sorted := make(map[string]any, len(val))
		for _, k := range keys {
			sorted[k] = sortKeys(val[k])
		}
		return sorted

	case []any:
		for i, item := range val {
			val[i] = sortKeys(item)
		}
		return val

	case []map[string]any:
		for i, item := range val {
			val[i] = sortKeys(item).(map[string]any)
		}
		return val

	default:
		return v
	}
}
