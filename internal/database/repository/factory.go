package repository

import (
	"github.com/jdillenkofer/fixity/internal/database"
	postgresBitstream "github.com/jdillenkofer/fixity/internal/database/pgx/repository/bitstream"
	postgresBitstreamContent "github.com/jdillenkofer/fixity/internal/database/pgx/repository/bitstreamcontent"
	postgresChecksumHistory "github.com/jdillenkofer/fixity/internal/database/pgx/repository/checksumhistory"
	postgresChecksumRecord "github.com/jdillenkofer/fixity/internal/database/pgx/repository/checksumrecord"
	postgresContainer "github.com/jdillenkofer/fixity/internal/database/pgx/repository/container"
	"github.com/jdillenkofer/fixity/internal/database/repository/bitstream"
	"github.com/jdillenkofer/fixity/internal/database/repository/bitstreamcontent"
	"github.com/jdillenkofer/fixity/internal/database/repository/checksumhistory"
	"github.com/jdillenkofer/fixity/internal/database/repository/checksumrecord"
	"github.com/jdillenkofer/fixity/internal/database/repository/container"
	sqliteBitstream "github.com/jdillenkofer/fixity/internal/database/sqlite/repository/bitstream"
	sqliteBitstreamContent "github.com/jdillenkofer/fixity/internal/database/sqlite/repository/bitstreamcontent"
	sqliteChecksumHistory "github.com/jdillenkofer/fixity/internal/database/sqlite/repository/checksumhistory"
	sqliteChecksumRecord "github.com/jdillenkofer/fixity/internal/database/sqlite/repository/checksumrecord"
	sqliteContainer "github.com/jdillenkofer/fixity/internal/database/sqlite/repository/container"
)

func NewChecksumRecordRepository(db database.Database) (checksumrecord.Repository, error) {
	switch db.GetDatabaseType() {
	case database.DB_TYPE_POSTGRES:
		return postgresChecksumRecord.NewRepository()
	case database.DB_TYPE_SQLITE:
		return sqliteChecksumRecord.NewRepository()
	}
	return nil, database.ErrUnknownDatabaseType
}

func NewChecksumHistoryRepository(db database.Database) (checksumhistory.Repository, error) {
	switch db.GetDatabaseType() {
	case database.DB_TYPE_POSTGRES:
		return postgresChecksumHistory.NewRepository()
	case database.DB_TYPE_SQLITE:
		return sqliteChecksumHistory.NewRepository()
	}
	return nil, database.ErrUnknownDatabaseType
}

func NewBitstreamRepository(db database.Database) (bitstream.Repository, error) {
	switch db.GetDatabaseType() {
	case database.DB_TYPE_POSTGRES:
		return postgresBitstream.NewRepository()
	case database.DB_TYPE_SQLITE:
		return sqliteBitstream.NewRepository()
	}
	return nil, database.ErrUnknownDatabaseType
}

func NewContainerRepository(db database.Database) (container.Repository, error) {
	switch db.GetDatabaseType() {
	case database.DB_TYPE_POSTGRES:
		return postgresContainer.NewRepository()
	case database.DB_TYPE_SQLITE:
		return sqliteContainer.NewRepository()
	}
	return nil, database.ErrUnknownDatabaseType
}

func NewBitstreamContentRepository(db database.Database) (bitstreamcontent.Repository, error) {
	switch db.GetDatabaseType() {
	case database.DB_TYPE_POSTGRES:
		return postgresBitstreamContent.NewRepository()
	case database.DB_TYPE_SQLITE:
		return sqliteBitstreamContent.NewRepository()
	}
	return nil, database.ErrUnknownDatabaseType
}
