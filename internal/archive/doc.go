// Package archive packages a photo job's selected stills into a zip file.
package archive
