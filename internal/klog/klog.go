// Package klog provides the kernel core's structured diagnostic loggers.
// The source kernel narrates boot and scheduling events with raw
// print("...\r\n") calls to a UART; this is the hosted equivalent, one
// sub-logger per subsystem.
package klog

import (
	"os"

	"github.com/charmbracelet/log"
)

var base = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	Prefix:          "mazcore",
})

// Sched returns the scheduler subsystem's logger.
func Sched() *log.Logger { return base.WithPrefix("mazcore/sched") }

// VM returns the virtual memory subsystem's logger.
func VM() *log.Logger { return base.WithPrefix("mazcore/vm") }

// SetLevel adjusts verbosity for all subsystem loggers at once.
func SetLevel(l log.Level) { base.SetLevel(l) }
