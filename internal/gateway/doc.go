// Package gateway is the HTTP client for the device gateway and the backing
// store that mirrors it.
//
// Every endpoint answers with a {success, data} envelope. The client checks
// the envelope, narrows data into typed values at the boundary and reports
// transport and shape failures as distinct sentinel errors.
package gateway
