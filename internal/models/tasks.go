package models

import "github.com/google/uuid"

// GenerationTaskPayload - сообщение в очереди задач генерации.
type GenerationTaskPayload struct {
	GenerationID    uuid.UUID `json:"generation_id"`
	SourceChapterID uuid.UUID `json:"source_chapter_id"`
	Attempt         int       `json:"attempt"`
}

// IllustrationTaskPayload - сообщение в очереди задач иллюстрирования.
type IllustrationTaskPayload struct {
	TaskID    string    `json:"task_id"`
	ChapterID uuid.UUID `json:"chapter_id"`
}

// IllustrationRequest - запрос к внешнему генератору изображений.
type IllustrationRequest struct {
	ChapterID uuid.UUID `json:"chapter_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	GenreHint string    `json:"genre_hint"`
	Style     string    `json:"style"`
}
