package services

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"

	"studio-booking/models"
)

const (
	meetingIDLength       = 11
	meetingPasscodeLength = 6
	passcodeAlphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"
	defaultClassLength    = 60 * time.Minute
)

// ClassMeeting is the online room provisioned for a booked class.
type ClassMeeting struct {
	MeetingID string    `json:"meeting_id"`
	Passcode  string    `json:"passcode"`
	JoinURL   string    `json:"join_url"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// DisplayID groups the meeting id as 3-4-4 digits.
func (m ClassMeeting) DisplayID() string {
	id := m.MeetingID
	if len(id) != meetingIDLength {
		return id
	}
	return id[:3] + " " + id[3:7] + " " + id[7:]
}

// MeetingProvisioner generates meeting ids, passcodes and join links.
type MeetingProvisioner struct {
	baseURL string
	rand    io.Reader
}

func NewMeetingProvisioner(baseURL string) *MeetingProvisioner {
	return &MeetingProvisioner{baseURL: baseURL, rand: rand.Reader}
}

// Provision creates the meeting for a class.
func (p *MeetingProvisioner) Provision(class *models.ClassDetails) (ClassMeeting, error) {
	first, err := randomString(p.rand, "123456789", 1)
	if err != nil {
		return ClassMeeting{}, fmt.Errorf("generating meeting id: %w", err)
	}
	rest, err := randomString(p.rand, "0123456789", meetingIDLength-1)
	if err != nil {
		return ClassMeeting{}, fmt.Errorf("generating meeting id: %w", err)
	}
	passcode, err := randomString(p.rand, passcodeAlphabet, meetingPasscodeLength)
	if err != nil {
		return ClassMeeting{}, fmt.Errorf("generating passcode: %w", err)
	}

	length := time.Duration(class.DurationMinutes) * time.Minute
	if length <= 0 {
		length = defaultClassLength
	}

	id := first + rest
	return ClassMeeting{
		MeetingID: id,
		Passcode:  passcode,
		JoinURL:   strings.TrimRight(p.baseURL, "/") + "/" + id + "?pwd=" + passcode,
		StartsAt:  class.StartsAt,
		EndsAt:    class.StartsAt.Add(length),
	}, nil
}
