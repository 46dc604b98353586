// Package explain produces the explanation text stored with each reading.
package explain
