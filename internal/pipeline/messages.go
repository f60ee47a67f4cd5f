package pipeline

import (
	"fmt"

	"whisperdesk/internal/model"
)

// Status texts shown to the user.
const (
	MsgReady        = "Ready"
	MsgLoadingModel = "Loading model..."
	MsgLargeWarning = "Loading large model on CPU - may be slow"
	MsgProcessing   = "Processing audio..."
	MsgLoadingAudio = "Loading audio..."
	MsgTranscribing = "Transcribing..."
	MsgSelectFile   = "Please select an audio file"
	MsgWaitModel    = "Model is still loading, please wait"
	MsgNoTranscript = "No transcription to save"
	MsgCleared      = "Transcription cleared"
	MsgCopied       = "Copied to clipboard"
	MsgNothingCopy  = "No transcription to copy"
	msgModelLoaded  = "Model '%s' loaded on %s"
	msgLoadedIn     = "Loaded in %.1fs"
	msgCompleted    = "Transcription completed! (%.1fs)"
	msgSaved        = "Saved: %s"
	msgErrorGeneric = "Error: %s"
	msgErrorAudio   = "Error processing audio: %s"
	msgErrorSaving  = "Error saving: %s"
	msgErrorCopying = "Error copying: %s"
)

func modelLoadedText(size model.ModelSize, device string) string {
	return fmt.Sprintf(msgModelLoaded, size, device)
}

func loadedInText(seconds float64) string {
	return fmt.Sprintf(msgLoadedIn, seconds)
}

func completedText(seconds float64) string {
	return fmt.Sprintf(msgCompleted, seconds)
}
