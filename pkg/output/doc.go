// Package output exports admitted scan results as JSON lines.
package output
