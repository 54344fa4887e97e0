// Package utils holds input validation shared by the controller transports.
package utils
