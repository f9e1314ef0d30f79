// Package services holds the shared error taxonomy and context annotations
// used across the job pipeline.
package services
