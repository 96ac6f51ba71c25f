// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing context and result packages. They are not
// intended for production usage.
package testutil
