// Package models defines domain entities and persistence interfaces for crate.
//
// The package contains three categories of types:
//
// 1. Persistent Entities: records owned by a single user and stored in SQLite
//   - [User] : The Spotify account; its id is the owner id on every other record
//   - [Track] : A library track, optionally carrying a Spotify id and URI
//   - [Playlist] : An ordered list of library tracks, optionally linked to a Spotify playlist
//   - [Tag] : A user-defined label attached to library tracks
//
// 2. Remote DTOs: provider data that is never stored as-is
//   - [RemotePlaylist] : Spotify playlist metadata
//
// 3. Display projections
//   - [LibraryEntry] : Tagged variant over local, linked and remote-only playlists with a common
//     name / track count / last activity projection used to sort the merged playlist list.
//
// Persistent entities implement [Model]; owner-scoped stores implement [Repository].
package models
