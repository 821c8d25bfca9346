// Package logging builds slog loggers for boorubot.
//
// Two output formats are supported: a human-oriented console format and
// line-delimited JSON. Loggers write to stdout plus a log file inside the
// configured log directory. Component loggers carry a standardized
// "component" attribute so related log lines can be grouped.
package logging
