// Package ffmpeg bounds source videos to full HD using ffprobe and ffmpeg.
package ffmpeg
