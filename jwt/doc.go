// Package jwt issues and verifies identity tokens naming the user and the
// organization a request acts for. Tokens never carry permissions; guards
// resolve those per request from the permission cache.
package jwt
