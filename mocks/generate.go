package mocks

//go:generate mockgen -destination=live.go -package=mocks github.com/mrsingh-rishi/live-voice/live Dialer,Session
//go:generate mockgen -destination=capture.go -package=mocks github.com/mrsingh-rishi/live-voice/capture Microphone,Stream
//go:generate mockgen -destination=output.go -package=mocks github.com/mrsingh-rishi/live-voice/output Player
