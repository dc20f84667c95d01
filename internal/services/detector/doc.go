// Package detector defines the vehicle detector/tracker collaborator contract
// and provides a gocv DNN implementation with greedy IoU track assignment.
//
// The pipeline depends only on the Service interface; any tracker that yields
// per-frame detections with stable track ids can replace the default.
package detector
