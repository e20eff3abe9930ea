// Command wavecache builds and inspects on-demand waveform summary
// caches for large audio files.
package main
