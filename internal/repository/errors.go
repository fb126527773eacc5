package repository

import "errors"

var (
	// ErrNotFound the targeted row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrLostRace a conditional update matched no row because another writer
	// changed it first; callers treat this as benign and move on
	ErrLostRace = errors.New("conditional update lost race")
)
