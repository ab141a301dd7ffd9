//go:build !gicdebug

package gic

const defaultFatalAssertions = false
