// Package selector picks camera stills by the capture time encoded in their
// filenames (YYYYMMDDHHMMSS.jpg) and persists the resulting manifest for a job.
package selector
