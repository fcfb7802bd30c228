package commands

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"catsync/pkg/catalog/local"
	"catsync/pkg/meta"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"
)

var resourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Manage catalog resources (storage backends)",
}

var (
	rescType     string
	rescLocation string
	rescParent   string
	rescPrefix   string
)

var resourceAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a resource",
	Long: `Add a named storage backend. Types:
  disk      location is the vault directory
  s3        location is the bucket, --prefix scopes the keys
  passthru  routes to its children, has no vault`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLocal(); err != nil {
			return err
		}

		switch rescType {
		case local.TypeDisk, local.TypeS3:
			if rescLocation == "" {
				return fmt.Errorf("--location is required for %s resources", rescType)
			}
			// vault 目录以绝对路径保存，和执行命令时的工作目录无关
			if rescType == local.TypeDisk {
				abs, err := filepath.Abs(rescLocation)
				if err != nil {
					return err
				}
				rescLocation = abs
			}
		case local.TypePassthru:
		default:
			return fmt.Errorf("unsupported resource type: %s", rescType)
		}

		rc, err := local.NewResourceContext(rescPrefix)
		if err != nil {
			return err
		}
		res := &meta.Resource{
			Name:     args[0],
			Type:     rescType,
			Parent:   rescParent,
			Location: rescLocation,
			Context:  datatypes.JSON(rc),
		}
		if err := CS.Repo.CreateResource(cmd.Context(), res); err != nil {
			return err
		}

		hier, err := CS.Repo.Hierarchy(cmd.Context(), res.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Added resource %s (%s)\n", res.Name, hier)
		return nil
	},
}

var resourceLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List resources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLocal(); err != nil {
			return err
		}

		list, err := CS.Repo.ListResources(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tHIERARCHY\tLOCATION")
		for _, r := range list {
			hier, err := CS.Repo.Hierarchy(cmd.Context(), r.Name)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Type, hier, r.Location)
		}
		return w.Flush()
	},
}

func init() {
	resourceAddCmd.Flags().StringVar(&rescType, "type", local.TypeDisk, "resource type: disk | s3 | passthru")
	resourceAddCmd.Flags().StringVar(&rescLocation, "location", "", "vault directory (disk) or bucket (s3)")
	resourceAddCmd.Flags().StringVar(&rescParent, "parent", "", "parent resource in the hierarchy")
	resourceAddCmd.Flags().StringVar(&rescPrefix, "prefix", "", "key prefix inside the bucket (s3)")

	resourceCmd.AddCommand(resourceAddCmd, resourceLsCmd)
	rootCmd.AddCommand(resourceCmd)
}
