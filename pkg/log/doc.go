/*
Package log provides structured logging for the catalyst content server using zerolog.

A single global Logger is configured once via Init and child loggers are
derived from it with WithComponent/WithEntityID/WithPeer so that every log
line from the deploy pipeline, the pointer manager, or the synchronizer
carries enough context to be correlated without a request tracer.

Levels: debug, info, warn, error, fatal (fatal calls os.Exit(1)).
*/
package log
