package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name: "explicit sslmode",
			config: Config{
				Host: "db", Port: 5432, User: "u", Password: "p", Database: "musicgen", SSLMode: "require",
			},
			want: "host=db port=5432 user=u password=p dbname=musicgen sslmode=require",
		},
		{
			name:   "sslmode defaults to disable",
			config: Config{Host: "localhost", Port: 5433, User: "postgres", Database: "x"},
			want:   "host=localhost port=5433 user=postgres password= dbname=x sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}
