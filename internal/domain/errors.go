package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a game session does not exist or has ended.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrPlaylistNotFound indicates the playlist content could not be loaded.
	ErrPlaylistNotFound = errors.New("playlist not found")
	// ErrEmptyPlaylist is returned when a playlist has no questions to play.
	ErrEmptyPlaylist = errors.New("playlist has no questions")
	// ErrQuestionNotFound indicates a submitted question ID is not the current question.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrNotAwaitingAnswer is returned when an answer arrives outside the answer window.
	ErrNotAwaitingAnswer = errors.New("session is not awaiting an answer")
	// ErrLifelineUsed is returned when a lifeline was already spent this session.
	ErrLifelineUsed = errors.New("lifeline already used")
	// ErrLifelineUnavailable is returned when lifelines are disabled or not applicable.
	ErrLifelineUnavailable = errors.New("lifeline not available")
	// ErrUnknownMode is returned for an unrecognised game mode.
	ErrUnknownMode = errors.New("unknown game mode")
	// ErrProviderUnavailable is returned when an optional AI provider is not configured.
	ErrProviderUnavailable = errors.New("provider not configured")
)
