// Package audio holds the captured PCM stream of a recognition session.
// FrameBuffer decouples the audio producer, which only appends, from the frame
// scheduler, which reads fixed-size frames behind its own consumed cursor.
package audio
