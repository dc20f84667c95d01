// Package workflow drives queued videos through the processing pipeline:
// scaling, vehicle extraction, duplicate and plate filtering, shot saving,
// and transfer. One job runs at a time.
package workflow
