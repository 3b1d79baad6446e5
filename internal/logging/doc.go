// Package logging sets up structured logging for the indexer.
//
// Every command writes JSON records to a size-rotated file under
// ~/ai-engine/logs/ so unattended runs (systemd timers, the watch
// service) leave a trail; interactive runs also mirror records to stderr.
package logging
