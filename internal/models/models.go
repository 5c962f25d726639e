// package models defines the data model for crate
package models

// Model defines the base interface for all persistent models.
type Model interface {
	Key() string     // Key returns the unique identifier for this model
	Owner() string   // Owner returns the id of the user that owns this model
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the owner-scoped data access operations shared by every store.
//
// Get and Delete fail with [shared.ErrNotFound] for missing records and [shared.ErrUnauthorized]
// when the record belongs to a different owner.
type Repository[T Model] interface {
	Create(model T) error              // Create inserts a new model, assigning its id
	Get(ownerID, id string) (T, error) // Get retrieves a model by its id
	Delete(ownerID, id string) error   // Delete soft-deletes a model by its id
	List(ownerID string) ([]T, error)  // List retrieves every live model of the owner
}
