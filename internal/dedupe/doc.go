// Package dedupe collapses visually duplicate vehicle crops using HSV
// histogram correlation, keeping the largest crop of each duplicate group.
package dedupe
