// Package model defines data structures for the voice conversation platform.
package model

import (
	"encoding/json"
	"time"
)

// ConversationRecord is the single canonical record for one voice session.
// One record per active session; fragments mutate it in place, finalize
// attaches the analysis.
type ConversationRecord struct {
	ID         string `json:"id"`
	SessionKey string `json:"session_key"`
	OwnerName  string `json:"owner_name,omitempty"`

	// Human-readable transcript (interleaved "User: ...\nAI: ..." lines).
	Transcript string `json:"transcript"`

	// Analysis is fully absent or fully populated from a single engine attempt.
	Analysis *Analysis `json:"analysis,omitempty"`

	// AnalysisRaw is the unmodified payload from whichever engine produced
	// the analysis, kept for audit even on degraded results.
	AnalysisRaw json.RawMessage `json:"analysis_raw,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// LastActivityAt drives the recency window; administrative writes must
	// not extend it.
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Analysis holds the structured result of a post-conversation analysis pass.
type Analysis struct {
	Summary            string    `json:"summary"`
	SatisfactionRating *int      `json:"satisfaction_rating,omitempty"`
	SatisfactionLabel  string    `json:"satisfaction_label,omitempty"`
	UserBehavior       string    `json:"user_behavior,omitempty"`
	ConversationTopic  string    `json:"conversation_topic,omitempty"`
	FeedbackSummary    string    `json:"feedback_summary,omitempty"`
	Engine             string    `json:"engine,omitempty"`
	AnalyzedAt         time.Time `json:"analyzed_at"`
}

// SaveConversationRequest is the inbound save/finalize payload.
type SaveConversationRequest struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	UserText       string `json:"user_text"`
	AIText         string `json:"ai_text"`
	OwnerName      string `json:"user_name,omitempty"`
	Finalize       bool   `json:"finalize,omitempty"`
	Confirmed      bool   `json:"confirmed,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// SaveConversationResponse is returned by the save/finalize endpoint.
type SaveConversationResponse struct {
	Status             string `json:"status"`
	ID                 string `json:"id"`
	SessionID          string `json:"session_id"`
	OwnerName          string `json:"user_name,omitempty"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`
	LastActivity       string `json:"last_activity"`
	Finalized          bool   `json:"finalized"`
	Summary            string `json:"summary,omitempty"`
	SatisfactionRating *int   `json:"satisfaction_rating,omitempty"`
	SatisfactionLabel  string `json:"satisfaction_label,omitempty"`
	ConversationTopic  string `json:"conversation_topic,omitempty"`
	AnalysisTimestamp  string `json:"analysis_timestamp,omitempty"`
}

// ConversationListItem is one row in the listing API, with a derived
// title and snippet so clients can render a history panel directly.
type ConversationListItem struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Snippet      string `json:"snippet"`
	LastActivity string `json:"last_activity"`
	SessionID    string `json:"session_id"`
	OwnerName    string `json:"user_name,omitempty"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Items []ConversationListItem `json:"items"`
}

// ConversationDetail is the full single-record view.
type ConversationDetail struct {
	ID                 string `json:"id"`
	SessionID          string `json:"session_id"`
	OwnerName          string `json:"user_name,omitempty"`
	Conversation       string `json:"conversation"`
	LastActivity       string `json:"last_activity"`
	Summary            string `json:"summary,omitempty"`
	SatisfactionRating *int   `json:"satisfaction_rating,omitempty"`
	SatisfactionLabel  string `json:"satisfaction_label,omitempty"`
	ConversationTopic  string `json:"conversation_topic,omitempty"`
	AnalysisTimestamp  string `json:"analysis_timestamp,omitempty"`
}

// SatisfactionBucket classifies an analyzed conversation for reporting.
type SatisfactionBucket string

const (
	BucketSatisfied    SatisfactionBucket = "satisfied"
	BucketDissatisfied SatisfactionBucket = "dissatisfied"
	BucketNeutral      SatisfactionBucket = "neutral"
)

// StatsResponse aggregates conversation outcomes over a time window.
type StatsResponse struct {
	Created      int    `json:"created"`
	Analyzed     int    `json:"analyzed"`
	Satisfied    int    `json:"satisfied"`
	Dissatisfied int    `json:"dissatisfied"`
	Neutral      int    `json:"neutral"`
	WindowStart  string `json:"window_start"`
	WindowEnd    string `json:"window_end"`
}
