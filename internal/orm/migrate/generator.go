package migrate

import (
	"github.com/conduit-lang/contentschema/internal/orm/codegen"
)

// Versions of the base migrations
const (
	VersionMetadataTables int64 = 1
	VersionContentTables  int64 = 2
	VersionHistoryTables  int64 = 3
)

// BaseMigrations returns the migrations installing the store's tables for a
// dialect. The history migration is included when withHistory is set.
func BaseMigrations(dialect codegen.Dialect, withHistory bool) []*Migration {
	g := codegen.NewDDLGenerator(dialect, 0)

	migrations := []*Migration{
		{
			Version: VersionMetadataTables,
			Name:    "create_metadata_tables",
			Up:      g.MetadataTables(),
			Down:    g.DropTables(codegen.AttributeTypeTable, codegen.ObjectTypeTable),
		},
		{
			Version: VersionContentTables,
			Name:    "create_content_tables",
			Up:      g.ContentTables(),
			Down:    g.DropTables(codegen.AttributeTable, codegen.NodeTable),
			// dropping the tables discards every stored instance
			DataLoss: true,
		},
	}

	if withHistory {
		migrations = append(migrations, &Migration{
			Version: VersionHistoryTables,
			Name:    "create_history_tables",
			Up:      g.HistoryTables(),
			Down: g.DropTables(
				codegen.HistoryTable(codegen.AttributeTable),
				codegen.HistoryTable(codegen.NodeTable),
			),
		})
	}

	return migrations
}
