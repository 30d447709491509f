package models

import "github.com/google/uuid"

type Genre struct {
	BaseModel
	Name string `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
}

type Director struct {
	BaseModel
	Name string  `json:"name" gorm:"type:varchar(255);not null;index"`
	Bio  *string `json:"bio,omitempty" gorm:"type:text"`
}

type Movie struct {
	BaseModel
	Title           string     `json:"title" gorm:"type:varchar(255);not null;index"`
	Description     string     `json:"description" gorm:"type:text;not null;default:''"`
	ReleaseYear     int        `json:"releaseYear" gorm:"not null;default:0"`
	DurationMinutes int        `json:"durationMinutes" gorm:"not null;default:0"`
	DirectorID      *uuid.UUID `json:"directorID,omitempty" gorm:"type:uuid;index"`
	VideoFileID     *string    `json:"videoFileID,omitempty" gorm:"type:varchar(255)"`
	VideoEmbedURL   *string    `json:"-" gorm:"type:text"`
	PosterPath      *string    `json:"-" gorm:"type:text"`

	Director  *Director `json:"director,omitempty" gorm:"foreignKey:DirectorID"`
	Genres    []Genre   `json:"genres" gorm:"many2many:movie_genres;"`
	PosterURL string    `json:"posterURL,omitempty" gorm:"-"`
	Playable  bool      `json:"playable" gorm:"-"`
	Favorited bool      `json:"favorited" gorm:"-"`
}

type Favorite struct {
	BaseModel
	UserID  uuid.UUID `json:"userID" gorm:"type:uuid;not null;uniqueIndex:idx_favorite_user_movie"`
	MovieID uuid.UUID `json:"movieID" gorm:"type:uuid;not null;uniqueIndex:idx_favorite_user_movie;index"`

	Movie *Movie `json:"movie,omitempty" gorm:"foreignKey:MovieID"`
}
