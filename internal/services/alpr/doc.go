// Package alpr validates vehicle crops against an external license plate
// recognition CLI and the plate formats used by each vehicle class.
package alpr
