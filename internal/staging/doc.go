// Package staging reclaims job working files left in camera videos
// directories by a daemon that stopped mid-job.
package staging
