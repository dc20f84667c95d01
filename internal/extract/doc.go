// Package extract reduces per-frame vehicle detections to one representative
// crop per track, selected by a configurable policy.
package extract
