package join

import "errors"

var (
	ErrCakeNotFound         = errors.New("join: cake not found")
	ErrLayerNotFound        = errors.New("join: layer not found")
	ErrInvalidColumnRoute   = errors.New("join: column route must address layer/component[/property]")
	ErrSetValueAmbiguous    = errors.New("join: setValue matched zero or more than one cell")
	ErrFilterRouteNotInJoin = errors.New("join: filter references a route not present in the selection")
	ErrCakeRouteNotUnique   = errors.New("join: cakeRoute is not unique")
)
