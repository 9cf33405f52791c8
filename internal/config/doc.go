// Package config provides configuration structures and loading for xspider.
//
// Values are layered in this order, later layers winning:
//  1. NewConfig defaults
//  2. The YAML file (.xspider.yaml or the XDG config dir)
//  3. The environment, optionally loaded from a .env file, which carries
//     credentials and proxy URLs so they stay out of the YAML file
//  4. CLI flags explicitly set by the user
package config
