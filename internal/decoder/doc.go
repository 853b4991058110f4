// Package decoder turns raw device status records into fault candidates.
//
// A record is a flat mapping of field names to flag values. Only fields on the
// device allow-list are considered, in allow-list order, and a field is active
// when its value is one of 1, true, "1" or "true".
package decoder
