//go:build gicdebug

package gic

const defaultFatalAssertions = true
