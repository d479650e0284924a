package prokernel

import "github.com/kernellabs/prokernel/internal/constants"

// Re-export the kernel's ABI limits for the public API.
const (
	MaxFiles             = constants.MaxFiles
	MaxFilename          = constants.MaxFilename
	MaxFileSize          = constants.MaxFileSize
	MaxProcesses         = constants.MaxProcesses
	MaxThreadsPerProcess = constants.MaxThreadsPerProcess
	ThreadStackSize      = constants.ThreadStackSize
	MaxMessageQueues     = constants.MaxMessageQueues
	MaxMessagesPerQueue  = constants.MaxMessagesPerQueue
	MaxMessageSize       = constants.MaxMessageSize
	MaxLogEntries        = constants.MaxLogEntries
	MaxLogMessage        = constants.MaxLogMessage
	MemorySize           = constants.MemorySize
	MemoryBlockSize      = constants.MemoryBlockSize
	GuardSize            = constants.GuardSize
	GuardSentinel        = constants.GuardSentinel
)
