// Package candidates builds the address list handed to the scanner from
// IPs, CIDR ranges and target files.
package candidates
