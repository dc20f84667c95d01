// Package services holds shared plumbing for external collaborator clients:
// the error taxonomy used to classify stage failures and context carriers for
// job/stage correlation in logs.
package services
